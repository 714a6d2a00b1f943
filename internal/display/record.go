package display

import (
	"time"

	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// record is one submitted request, from Submit until it is closed or cancelled.
// inst and coord are only set while the record is live.
type record struct {
	id    model.ID
	req   model.Request
	state model.State

	submittedAt time.Time

	inst  pool.Instance
	coord *coordinator
}
