package brute

import (
	"bufio"
	"os"
	"strings"

	"raider/internal/pkg/logger"
)

// DefaultTopUsers 内置 Top 用户名 (Keep it small for binary size)
var DefaultTopUsers = []string{
	"root", "admin", "user", "test", "guest",
	"postgres", "mysql", "pi",
	"administrator", "service", "system",
}

// DefaultTopPasswords 内置 Top 弱口令
var DefaultTopPasswords = []string{
	"", "123456", "password", "12345678", "123456789", "12345", "123",
	"root", "admin", "test", "raspberry", "111111", "1234567",
	"%user%", "%user%123", "%user%@123", "123%user%",
}

// DictManager 字典管理器
// 优先用外部字典文件，读不到时回落内置 Top 列表
type DictManager struct {
	users []string
	passs []string
}

// NewDictManager 创建字典管理器
// userFile/passFile 为空或不可读时使用内置字典
func NewDictManager(userFile, passFile string) *DictManager {
	return &DictManager{
		users: loadWordlist(userFile, DefaultTopUsers),
		passs: loadWordlist(passFile, DefaultTopPasswords),
	}
}

// Generate 生成爆破凭据列表
func (d *DictManager) Generate(mode AuthMode) []Auth {
	var list []Auth

	switch mode {
	case AuthModeUserPass:
		// 笛卡尔积: User * Pass，%user% 动态替换
		for _, u := range d.users {
			for _, p := range d.passs {
				realPass := strings.ReplaceAll(p, "%user%", u)
				list = append(list, Auth{Username: u, Password: realPass})
			}
		}

	case AuthModeOnlyPass:
		// 仅遍历密码，首个空密码等价于未授权探测
		for _, p := range d.passs {
			realPass := strings.ReplaceAll(p, "%user%", "admin")
			list = append(list, Auth{Password: realPass})
		}

	case AuthModeNone:
		// 空凭据 (探测未授权)
		list = append(list, Auth{})
	}

	return list
}

// Users 当前生效的用户名列表
func (d *DictManager) Users() []string {
	return append([]string{}, d.users...)
}

// Passwords 当前生效的密码列表
func (d *DictManager) Passwords() []string {
	return append([]string{}, d.passs...)
}

// loadWordlist 按行读取字典文件，# 开头为注释行
// 空密码用字面量 "" 不可表达，因此内置列表保留空串而文件不追加
func loadWordlist(path string, defaultVal []string) []string {
	if path == "" {
		return defaultVal
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warnf("wordlist %s not readable, using builtin: %v", path, err)
		return defaultVal
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		logger.Warnf("wordlist %s read error, using builtin: %v", path, err)
		return defaultVal
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
