package app

const (
	Name           = "myolink"
	ConfigFilename = "config.json"
	LogFilename    = "app.log"
)
