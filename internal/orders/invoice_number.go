package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceDueWindow is how long a new invoice stays payable.
const InvoiceDueWindow = 72 * time.Hour

// NewInvoiceNumber formats INV-<unix ms>-<8 hex>.
func NewInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%d-%s", now.UnixMilli(), suffix)
}
