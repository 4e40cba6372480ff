// Package carriers imports all carrier rule packages to trigger their init()
// registration. Import this package for side effects only.
package carriers

import (
	_ "podwatch/internal/carriers/amazon"
	_ "podwatch/internal/carriers/correios"
	_ "podwatch/internal/carriers/jadlog"
	_ "podwatch/internal/carriers/mercadolivre"
)
