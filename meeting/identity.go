package meeting

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UserVoterID 已登录用户的投票人ID
func UserVoterID(userID string) string {
	return "user:" + userID
}

// DefaultIdentityPath 设备级投票人ID的保存位置
func DefaultIdentityPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "meeting-room", "voter-id"), nil
}

// LoadOrCreateVoterID 返回本设备的投票人ID。
// 有登录用户时直接用用户ID；否则读取 path，文件不存在时生成新的UUID并写入。
func LoadOrCreateVoterID(path, userID string) (string, error) {
	if userID != "" {
		return UserVoterID(userID), nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read voter id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write voter id: %w", err)
	}
	return id, nil
}
