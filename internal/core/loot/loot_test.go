package loot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"raider/internal/core/model"
)

func TestCredStoreAppendAndList(t *testing.T) {
	store, err := NewCredStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cred := model.CredentialRecord{
		Protocol: "ssh",
		IP:       "10.0.0.1",
		MAC:      "aa:bb:cc:dd:ee:01",
		Username: "root",
		Password: "123456",
		FoundAt:  time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Append(cred); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(model.CredentialRecord{Protocol: "ssh", IP: "10.0.0.2", MAC: "aa:bb:cc:dd:ee:02", Username: "admin", Password: "admin"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	creds, err := store.List("ssh")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("List() = %d creds, want 2", len(creds))
	}
	if creds[0].Username != "root" || creds[0].Password != "123456" {
		t.Errorf("creds[0] = %+v", creds[0])
	}
	if !creds[0].FoundAt.Equal(cred.FoundAt) {
		t.Errorf("FoundAt = %v, want %v", creds[0].FoundAt, cred.FoundAt)
	}

	// 不同协议互不串
	if ftpCreds, _ := store.List("ftp"); len(ftpCreds) != 0 {
		t.Errorf("List(ftp) = %d creds, want 0", len(ftpCreds))
	}
}

func TestCredStoreFindForTarget(t *testing.T) {
	store, err := NewCredStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store.Append(model.CredentialRecord{Protocol: "ftp", IP: "10.0.0.1", Username: "anonymous"})
	store.Append(model.CredentialRecord{Protocol: "ftp", IP: "10.0.0.2", Username: "ftpuser"})

	creds, err := store.FindForTarget("ftp", "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 1 || creds[0].Username != "anonymous" {
		t.Errorf("FindForTarget() = %+v", creds)
	}
}

func TestCredStoreClear(t *testing.T) {
	store, err := NewCredStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store.Append(model.CredentialRecord{Protocol: "smb", IP: "10.0.0.1", Username: "guest"})
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if creds, _ := store.List("smb"); len(creds) != 0 {
		t.Errorf("List() after Clear = %d creds", len(creds))
	}
	// 清空后还能继续写
	if err := store.Append(model.CredentialRecord{Protocol: "smb", IP: "10.0.0.1", Username: "guest"}); err != nil {
		t.Errorf("Append() after Clear error = %v", err)
	}
}

func TestFileStoreSave(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	local, err := store.Save("ftp", "aa:bb:cc:dd:ee:01", "10.0.0.1", "/etc/passwd", strings.NewReader("root:x:0:0"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// 远端路径压平，MAC 冒号替换
	if filepath.Base(local) != "etc_passwd" {
		t.Errorf("local file = %q, want flattened etc_passwd", filepath.Base(local))
	}
	if strings.Contains(local, ":") {
		t.Errorf("path %q contains colon", local)
	}

	data, err := os.ReadFile(local)
	if err != nil || string(data) != "root:x:0:0" {
		t.Errorf("content = %q, err = %v", data, err)
	}

	if got := store.Count("ftp", "aa:bb:cc:dd:ee:01", "10.0.0.1"); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestFileStoreClear(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store.Save("ssh", "aa:bb:cc:dd:ee:01", "10.0.0.1", "notes.txt", strings.NewReader("x"))
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := store.Count("ssh", "aa:bb:cc:dd:ee:01", "10.0.0.1"); got != 0 {
		t.Errorf("Count() after Clear = %d", got)
	}
}
