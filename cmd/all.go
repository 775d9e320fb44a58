package cmd

import (
	_ "s5-keeper/cmd/install"
	_ "s5-keeper/cmd/logs"
	_ "s5-keeper/cmd/metrics"
	_ "s5-keeper/cmd/root"
	_ "s5-keeper/cmd/server"
	_ "s5-keeper/cmd/service"
)
