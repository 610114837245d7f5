// Package env loads .env files and reads typed environment settings.
package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EnvFile names an explicit .env file and disables the directory search.
const EnvFile = "DEVICESCAN_ENV_FILE"

var (
	loadOnce   sync.Once
	loadedPath string
	loadErr    error
)

// Ensure loads one .env file, once per process. Variables already present in
// the environment win. The file is $DEVICESCAN_ENV_FILE when set, otherwise
// the nearest .env above the working directory, otherwise
// ~/.devicescan/.env.
func Ensure() error {
	// Unit tests never read a developer .env unless GOTEST_LOAD_DOTENV=1.
	if runningUnderGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		wd, _ := os.Getwd()
		home, _ := os.UserHomeDir()
		path, err := resolveDotEnv(os.Getenv(EnvFile), wd, home)
		if err != nil {
			loadErr = err
			log.Warn().Err(err).Msg("devicescan: locate .env failed")
			return
		}
		if path == "" {
			return
		}
		if err := godotenv.Load(path); err != nil {
			loadErr = errors.Wrapf(err, "load %s", path)
			log.Warn().Err(err).Str("dotenv", path).Msg("devicescan: load .env failed")
			return
		}
		loadedPath = path
		log.Debug().Str("dotenv", path).Msg("devicescan: loaded .env")
	})
	return loadErr
}

// LoadedPath returns the .env path Ensure loaded, or "".
func LoadedPath() string {
	return loadedPath
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// resolveDotEnv picks the .env file to load. An explicit path must exist;
// the search through dir's ancestors and home yields "" when nothing exists.
func resolveDotEnv(explicit, dir, home string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if !isFile(explicit) {
			return "", errors.Errorf("%s=%s is not a file", EnvFile, explicit)
		}
		return explicit, nil
	}
	for d := dir; d != ""; {
		if candidate := filepath.Join(d, ".env"); isFile(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if home != "" {
		if candidate := filepath.Join(home, ".devicescan", ".env"); isFile(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
