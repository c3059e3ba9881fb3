package populate

import "sync"

// Progress is the shared view of one generation job. The fill loop writes
// it, the command server reads it on every poll.
type Progress struct {
	mu     sync.Mutex
	status string
	row    int
	total  int
	column *string
}

// ProgressView is the wire shape of a progress snapshot.
type ProgressView struct {
	Status string  `json:"status"`
	Row    int     `json:"row"`
	Total  int     `json:"total"`
	Column *string `json:"column"`
}

// NewProgress returns a progress tracker in the starting state. Column is
// unset until the fill loop touches its first column.
func NewProgress(total int) *Progress {
	return &Progress{status: "starting", total: total}
}

func (p *Progress) SetStatus(status string) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *Progress) SetRow(row int) {
	p.mu.Lock()
	p.row = row
	p.mu.Unlock()
}

func (p *Progress) SetColumn(name string) {
	p.mu.Lock()
	p.column = &name
	p.mu.Unlock()
}

func (p *Progress) Snapshot() ProgressView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressView{Status: p.status, Row: p.row, Total: p.total, Column: p.column}
}
