package protocol

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"raider/internal/core/scanner/brute"

	"github.com/ziutek/telnet"
)

// TelnetCracker Telnet 协议爆破器
//
// 检测原理:
//  1. 状态机交互: "用户名提示" -> 发用户名 -> "密码提示" -> 发密码 -> 结果判定
//  2. 正则匹配各种设备的提示符 ("Login:", "User Name:", "Password:" 等)
//  3. 结果判定: 匹配到 Shell 提示符 (#, $, >, %) 即成功;
//     匹配到失败关键词或再次出现 Login 提示即失败
//  4. 每步读取都有超时，防止被非标准设备挂起
type TelnetCracker struct {
	reLogin    *regexp.Regexp
	rePassword *regexp.Regexp
	reShell    *regexp.Regexp
	reFail     *regexp.Regexp
}

func NewTelnetCracker() *TelnetCracker {
	return &TelnetCracker{
		reLogin:    regexp.MustCompile(`(?i)(login|user\s*name|username|user)[\s:]*$`),
		rePassword: regexp.MustCompile(`(?i)(password|pass)[\s:]*$`),
		reShell:    regexp.MustCompile(`[#$>%]\s*$`),
		reFail:     regexp.MustCompile(`(?i)(incorrect|failed|denied|bad|invalid)`),
	}
}

func (c *TelnetCracker) Name() string {
	return "telnet"
}

func (c *TelnetCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

func (c *TelnetCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	dialTimeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
		if dialTimeout <= 0 {
			return false, brute.ErrConnectionFailed
		}
	}

	conn, err := telnet.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false, brute.ErrConnectionFailed
	}
	defer conn.Close()

	stepTimeout := 3 * time.Second
	conn.SetReadDeadline(time.Now().Add(stepTimeout))
	conn.SetWriteDeadline(time.Now().Add(stepTimeout))

	// Stage 1: 等待登录或密码提示符 (有些设备只要密码)
	data, err := c.readUntilMatch(conn, c.reLogin, c.rePassword)
	if err != nil {
		return false, brute.ErrConnectionFailed
	}

	if !c.rePassword.Match(data) {
		// 匹配到 Login 提示符，发送用户名
		if err := c.sendLine(conn, auth.Username); err != nil {
			return false, brute.ErrConnectionFailed
		}

		// Stage 2: 等待密码提示符
		conn.SetReadDeadline(time.Now().Add(stepTimeout))
		if _, err := c.readUntilMatch(conn, c.rePassword); err != nil {
			// 发完用户名没等到密码提示，按失败处理
			return false, nil
		}
	}

	// Stage 3: 发送密码
	if err := c.sendLine(conn, auth.Password); err != nil {
		return false, brute.ErrConnectionFailed
	}

	// Stage 4: 判定结果
	conn.SetReadDeadline(time.Now().Add(stepTimeout))
	success, err := c.checkResult(conn)
	if err != nil {
		// 超时且没匹配到任何特征，按失败处理
		return false, nil
	}
	return success, nil
}

// readUntilMatch 逐字节读取直到匹配任意一个正则
func (c *TelnetCracker) readUntilMatch(conn *telnet.Conn, regexps ...*regexp.Regexp) ([]byte, error) {
	var buf []byte
	b := make([]byte, 1)

	for {
		n, err := conn.Read(b)
		if n > 0 {
			buf = append(buf, b[0])
			for _, re := range regexps {
				if re.Match(buf) {
					return buf, nil
				}
			}
		}
		if err != nil {
			return buf, err
		}
	}
}

// sendLine 发送一行数据 (自动追加 \r\n)
func (c *TelnetCracker) sendLine(conn *telnet.Conn, msg string) error {
	_, err := conn.Write([]byte(msg + "\r\n"))
	return err
}

// checkResult 读取后续数据并判定成功/失败
func (c *TelnetCracker) checkResult(conn *telnet.Conn) (bool, error) {
	var buf []byte
	b := make([]byte, 256)

	for {
		n, err := conn.Read(b)
		if n > 0 {
			buf = append(buf, b[:n]...)

			if c.reFail.Match(buf) {
				return false, nil
			}
			// 再次出现 Login 提示也是失败
			if c.reLogin.Match(buf) {
				return false, nil
			}
			if c.reShell.Match(buf) {
				return true, nil
			}
		}
		if err != nil {
			return false, err
		}
	}
}
