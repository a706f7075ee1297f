package brute

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDictGenerateUserPass(t *testing.T) {
	d := NewDictManager("", "")
	list := d.Generate(AuthModeUserPass)

	if len(list) != len(DefaultTopUsers)*len(DefaultTopPasswords) {
		t.Errorf("Generate() = %d entries, want %d", len(list), len(DefaultTopUsers)*len(DefaultTopPasswords))
	}

	// %user% 替换
	found := false
	for _, a := range list {
		if strings.Contains(a.Password, "%user%") {
			t.Errorf("unreplaced %%user%% in password %q", a.Password)
		}
		if a.Username == "root" && a.Password == "root123" {
			found = true
		}
	}
	if !found {
		t.Error("expected root/root123 from %user%123 template")
	}
}

func TestDictGenerateOnlyPass(t *testing.T) {
	d := NewDictManager("", "")
	list := d.Generate(AuthModeOnlyPass)

	if len(list) != len(DefaultTopPasswords) {
		t.Fatalf("Generate() = %d entries, want %d", len(list), len(DefaultTopPasswords))
	}
	for _, a := range list {
		if a.Username != "" {
			t.Errorf("OnlyPass entry has username %q", a.Username)
		}
	}
	// 空密码排在最前，未授权探测优先
	if list[0].Password != "" {
		t.Errorf("first password = %q, want empty", list[0].Password)
	}
}

func TestDictLoadWordlistFile(t *testing.T) {
	dir := t.TempDir()
	userFile := filepath.Join(dir, "users.txt")
	content := "# comment\nalice\n\nbob\n"
	if err := os.WriteFile(userFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDictManager(userFile, "")
	users := d.Users()
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("Users() = %v, want [alice bob]", users)
	}
	// 密码文件未给，回落内置
	if len(d.Passwords()) != len(DefaultTopPasswords) {
		t.Errorf("Passwords() = %d entries, want builtin %d", len(d.Passwords()), len(DefaultTopPasswords))
	}
}

func TestDictMissingFileFallsBack(t *testing.T) {
	d := NewDictManager("/nonexistent/users.txt", "/nonexistent/pass.txt")
	if len(d.Users()) != len(DefaultTopUsers) {
		t.Errorf("Users() = %d, want builtin fallback", len(d.Users()))
	}
}

func TestAuthGuest(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
		want bool
	}{
		{"anonymous ftp", Auth{Username: "anonymous", Password: "anonymous@"}, true},
		{"guest user", Auth{Username: "guest"}, true},
		{"unauthorized access", Auth{}, true},
		{"real user", Auth{Username: "root", Password: "123456"}, false},
		{"passwordless named user", Auth{Username: "admin"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.auth.Guest(); got != tt.want {
				t.Errorf("Guest() = %v, want %v", got, tt.want)
			}
		})
	}
}
