package paths

import (
	"os"
	"path/filepath"
)

// GetDataDir 获取应用数据目录
func GetDataDir() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil || userConfigDir == "" {
		return filepath.Join(".", "data")
	}
	return filepath.Join(userConfigDir, "sanjiu")
}

// GetUsageDir 获取用量记录目录
func GetUsageDir() string {
	return filepath.Join(GetDataDir(), "usage")
}

// EnsureDir 确保数据子目录存在并返回路径
func EnsureDir(subDir string) string {
	dir := filepath.Join(GetDataDir(), subDir)
	os.MkdirAll(dir, 0755)
	return dir
}
