package main

import (
	"github.com/spf13/pflag"

	"github.com/joshuarp/hotconfig/internal/app"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "daemon config file (yaml or .env); defaults to ./config.yaml")
	pflag.Parse()

	app.New(*configPath, app.ConfigsModule()).Run()
}
