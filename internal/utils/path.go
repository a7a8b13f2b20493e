package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// AppName names the config directory and the binary.
const AppName = "ghostserve"

// ErrNoDictionary is returned when no dictionary file could be located.
var ErrNoDictionary = errors.New("no dictionary found")

// dictionaryNames are probed in every candidate directory, in order.
var dictionaryNames = []string{"words.txt", "words.msgpack", "dict.txt", "dict.msgpack"}

// PathResolver locates config and data files relative to the user's
// config directory, the executable and the working directory.
type PathResolver struct {
	executableDir string
	homeDir       string
	configDir     string
}

// NewPathResolver inspects the runtime environment.
func NewPathResolver() *PathResolver {
	execDir, err := GetExecutableDir()
	if err != nil {
		log.Debugf("Could not determine executable directory: %v", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}
	pr := &PathResolver{
		executableDir: execDir,
		homeDir:       homeDir,
		configDir:     platformConfigDir(homeDir),
	}
	log.Debugf("PathResolver initialized: execDir=%s, configDir=%s", execDir, pr.configDir)
	return pr
}

func platformConfigDir(homeDir string) string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppName)
	default:
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, AppName)
		}
		return filepath.Join(homeDir, ".config", AppName)
	}
}

// ConfigDir returns the platform config directory.
func (pr *PathResolver) ConfigDir() string {
	return pr.configDir
}

// ExecutableDir returns the directory of the running binary, or "".
func (pr *PathResolver) ExecutableDir() string {
	return pr.executableDir
}

// candidateDirs lists the directories probed for data files.
func (pr *PathResolver) candidateDirs() []string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd, filepath.Join(cwd, "data"))
	}
	if pr.executableDir != "" {
		dirs = append(dirs,
			pr.executableDir,
			filepath.Join(pr.executableDir, "data"),
			filepath.Join(filepath.Dir(pr.executableDir), "data"),
		)
	}
	return append(dirs, pr.configDir, filepath.Join(pr.configDir, "data"))
}

// Dictionary resolves the dictionary to load. An explicit path wins and
// must exist; otherwise well-known names are probed in the candidate dirs.
func (pr *PathResolver) Dictionary(explicit string) (string, error) {
	if explicit != "" {
		if !FileExists(explicit) {
			return "", errors.Wrapf(ErrNoDictionary, "%s does not exist", explicit)
		}
		return GetAbsolutePath(explicit), nil
	}
	for _, dir := range pr.candidateDirs() {
		for _, name := range dictionaryNames {
			path := filepath.Join(dir, name)
			if FileExists(path) {
				log.Debugf("Found dictionary: %s", path)
				return path, nil
			}
		}
	}
	return "", errors.WithHint(ErrNoDictionary,
		"pass --dict or place words.txt in "+pr.configDir)
}
