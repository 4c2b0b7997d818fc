// package all blank-imports every SoC driver package so their init()
// functions run and register with package soc, the way periph's
// host/all pulls in every platform driver for host.Init to find.
// Programs that want the full driver set -- rather than hand-picking a
// subset of soc/... imports themselves -- import this package for its
// side effect only.
package all

import (
	_ "culvert.dev/culvert/soc/clk"
	_ "culvert.dev/culvert/soc/debugctl"
	_ "culvert.dev/culvert/soc/ilpcctl"
	_ "culvert.dev/culvert/soc/otp"
	_ "culvert.dev/culvert/soc/pciectl"
	_ "culvert.dev/culvert/soc/scu"
	_ "culvert.dev/culvert/soc/sdram"
	_ "culvert.dev/culvert/soc/sfc"
	_ "culvert.dev/culvert/soc/trace"
	_ "culvert.dev/culvert/soc/uartmux"
	_ "culvert.dev/culvert/soc/vuart"
	_ "culvert.dev/culvert/soc/wdt"
)
