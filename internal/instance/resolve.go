package instance

import "github.com/matheus3301/doska/internal/config"

const DefaultName = "main"

// Resolve picks the instance name: the --instance flag, then
// default_instance from the global config, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	g, err := config.LoadGlobal(GlobalConfigPath())
	if err == nil && g.DefaultInstance != "" {
		return g.DefaultInstance
	}
	return DefaultName
}
