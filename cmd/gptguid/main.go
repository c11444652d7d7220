package main

import (
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/vorteil/gptguid/pkg/cli"
	"github.com/vorteil/gptguid/pkg/elog"
)

func init() {
	log := &elog.CLI{}
	logrus.SetFormatter(log)
	logrus.SetOutput(colorable.NewColorableStderr())
	logrus.SetLevel(logrus.TraceLevel)
}

func main() {

	defer cli.HandleErrors()

	cli.InitializeCommands()

	err := cli.RootCommand.Execute()
	if err != nil {
		cli.SetError(err, 1)
		return
	}

}
