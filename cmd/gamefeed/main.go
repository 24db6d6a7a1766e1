package main

import (
	"gamefeed-backend/cmd/gamefeed/commands"
	"gamefeed-backend/lib/telemetry"
	"gamefeed-backend/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.SetupFromEnv(ctx, "gamefeed")
	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
