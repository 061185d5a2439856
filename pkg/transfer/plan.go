package transfer

import "encoding/json"

// PlanEntry pairs a unit with its decided action.
type PlanEntry struct {
	Unit   UnitOfWork `json:"unit"`
	Action Action     `json:"action"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// Plan is the decided set of units for one run. A dry run renders it; a
// live run executes it.
type Plan struct {
	Policy  ExistingPolicy `json:"-"`
	Entries []PlanEntry    `json:"entries"`
}

// PlanCounts is the per-action breakdown of a plan.
type PlanCounts struct {
	Create    int `json:"create"`
	Skip      int `json:"skip"`
	Overwrite int `json:"overwrite"`
	Fail      int `json:"fail"`

	// EstimatedRows sums the row estimates of units that would
	// actually transfer data.
	EstimatedRows int64 `json:"estimated_rows"`
}

func (p *Plan) Counts() PlanCounts {
	var c PlanCounts
	for _, e := range p.Entries {
		switch e.Action {
		case ActionCreate:
			c.Create++
			c.EstimatedRows += e.Unit.RowEstimate
		case ActionSkip:
			c.Skip++
		case ActionOverwrite:
			c.Overwrite++
			c.EstimatedRows += e.Unit.RowEstimate
		case ActionFail:
			c.Fail++
		}
	}
	return c
}
