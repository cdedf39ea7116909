package domain

// Status はジョブのライフサイクル状態です。
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAnalyzing Status = "ANALYZING"
	StatusScripting Status = "SCRIPTING"
	StatusRendering Status = "RENDERING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// statusOrder は前進方向の順序です。FAILED は順序に含めず、任意の非終端状態から遷移できます。
var statusOrder = map[Status]int{
	StatusPending:   0,
	StatusAnalyzing: 1,
	StatusScripting: 2,
	StatusRendering: 3,
	StatusCompleted: 4,
}

// IsTerminal は終端状態かどうかを返します。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid は既知の状態かどうかを返します。
func (s Status) IsValid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// CanTransitionTo は s から next への遷移が許可されているかを返します。
// 同一状態への遷移 (進捗更新) と、直後の状態への前進、非終端から FAILED への遷移のみ許可します。
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed || next == s {
		return true
	}
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}
