package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/dep2p/go-filesharer/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// loadConfigFile 从 JSON 文件加载配置，未出现的字段保留默认值
func loadConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, err
	}
	return config.FromJSON(data)
}

// loadResourcesFile 读取资源列表
//
// 每行一个资源名，忽略空行与 # 开头的注释行。
func loadResourcesFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: 用户指定的资源文件路径是预期行为
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, scanner.Err()
}
