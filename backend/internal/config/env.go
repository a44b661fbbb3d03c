package config

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var (
	// envOnce 确保环境文件在进程内只加载一次。
	envOnce     sync.Once
	envOnceLock sync.Mutex
	skipEnvLoad bool
)

// LoadEnvFiles 按优先级加载环境文件：ENV_FILE 指定的路径最高，
// 其次是从当前目录向上查找到的 .env.local 与 .env。
// 重复调用只会生效一次，测试可通过 SetEnvFileLoadingForTest 关闭。
func LoadEnvFiles() {
	if skipEnvLoad || os.Getenv("CONFIG_SKIP_ENV_LOAD") == "1" {
		return
	}

	envOnce.Do(func() {
		if explicit := os.Getenv("ENV_FILE"); explicit != "" {
			if err := godotenv.Overload(explicit); err != nil {
				log.Printf("[config] load env file %s failed: %v", explicit, err)
			} else {
				log.Printf("[config] loaded environment file: %s", explicit)
			}
			return
		}

		// .env.local 优先于 .env，两者都存在时后加载的覆盖先加载的。
		for _, name := range []string{".env.local", ".env"} {
			if path, ok := findEnvFile(name); ok {
				if err := godotenv.Overload(path); err == nil {
					log.Printf("[config] loaded environment file: %s", path)
				}
			}
		}
	})
}

// SetEnvFileLoadingForTest 开关自动加载逻辑，仅供测试使用。
func SetEnvFileLoadingForTest(enabled bool) {
	envOnceLock.Lock()
	defer envOnceLock.Unlock()

	skipEnvLoad = !enabled
	envOnce = sync.Once{}
}

// findEnvFile 从当前目录开始逐级向上查找指定名称的环境文件。
func findEnvFile(name string) (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
