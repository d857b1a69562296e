package config

import (
	"fmt"
	"path/filepath"
)

// StorageConfig 存储配置
//
// 目录服务器的注册表保存在 BadgerDB 中：
//
//	${DataDir}/
//	└── registry.db/
type StorageConfig struct {
	// DataDir 数据目录
	// 默认值: "./data"
	DataDir string `json:"data_dir"`

	// InMemory 只在内存中保存（测试与临时部署）
	InMemory bool `json:"in_memory"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir: "./data",
	}
}

// Validate 验证存储配置
func (c *StorageConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("storage: data_dir cannot be empty")
	}
	return nil
}

// DBPath 注册表数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}
