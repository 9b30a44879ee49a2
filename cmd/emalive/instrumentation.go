package main

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-live/cmd/emalive"

var logger = otelslog.NewLogger(scopeName)
