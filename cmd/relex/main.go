package main

import (
	"os"

	"go.uber.org/zap"
)

func main() {
	if err := Execute(); err != nil {
		l := errorLogger()
		l.Error("relex failed", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}
