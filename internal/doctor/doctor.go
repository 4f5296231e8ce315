// Package doctor runs runtime readiness diagnostics for config, the engine,
// audio, and the output command.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/moinulmoin/voicetypr/internal/audio"
	"github.com/moinulmoin/voicetypr/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", cfg.Path)
	if len(cfg.Warnings) > 0 {
		configMsg = fmt.Sprintf("%s (%d warning(s))", configMsg, len(cfg.Warnings))
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkEngineBinary(cfg.Config.Engine.Bin))
	checks = append(checks, checkCacheDir(cfg.Config.Engine.CacheDir))
	checks = append(checks, checkCommand(cfg.Config.Output.Cmd.Argv, "output_cmd"))
	checks = append(checks, checkAudioSelection(cfg.Config))

	return Report{Checks: checks}
}

// checkEngineBinary accepts either a PATH lookup or an explicit file path.
func checkEngineBinary(bin string) Check {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		return Check{Name: "engine.bin", Pass: false, Message: "engine.bin is empty"}
	}

	if strings.ContainsRune(bin, filepath.Separator) {
		info, err := os.Stat(bin)
		if err != nil {
			return Check{Name: "engine.bin", Pass: false, Message: fmt.Sprintf("engine binary missing: %v", err)}
		}
		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return Check{Name: "engine.bin", Pass: false, Message: fmt.Sprintf("%s is not executable", bin)}
		}
		return Check{Name: "engine.bin", Pass: true, Message: fmt.Sprintf("found at %s", bin)}
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: "engine.bin", Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: "engine.bin", Pass: true, Message: fmt.Sprintf("found at %s", path)}
}

// checkCacheDir verifies the model cache directory can be created and written.
func checkCacheDir(dir string) Check {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Check{Name: "engine.cache_dir", Pass: true, Message: "unset; engine default applies"}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: "engine.cache_dir", Pass: false, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: "engine.cache_dir", Pass: false, Message: fmt.Sprintf("not writable: %v", err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return Check{Name: "engine.cache_dir", Pass: true, Message: fmt.Sprintf("writable at %s", dir)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", argv[0])}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found at %s", path)}
}

// checkAudioSelection runs live device selection to surface input issues.
func checkAudioSelection(cfg config.Config) Check {
	device, err := audio.SelectDevice(context.Background(), cfg.Audio.Input)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.device", Pass: true, Message: fmt.Sprintf("selected %q", device.ID)}
}
