package slackcmd

import (
	"fmt"
	"log/slog"

	"github.com/globee-labs/globee/llm"
	"github.com/spf13/cobra"
)

type Dependencies struct {
	LoggerFromViper func() (*slog.Logger, error)
	CreateLLMClient func(modelID, region string) (llm.Client, error)
}

var deps Dependencies

func NewCommand(d Dependencies) *cobra.Command {
	deps = d
	return newSlackCmd()
}

func loggerFromViper() (*slog.Logger, error) {
	if deps.LoggerFromViper == nil {
		return nil, fmt.Errorf("LoggerFromViper dependency missing")
	}
	return deps.LoggerFromViper()
}

func llmClientFromConfig(modelID, region string) (llm.Client, error) {
	if deps.CreateLLMClient == nil {
		return nil, fmt.Errorf("CreateLLMClient dependency missing")
	}
	return deps.CreateLLMClient(modelID, region)
}
