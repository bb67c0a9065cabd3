package trigger

func (a *Adapter) Type() string {
	return a.nodeType
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{"type": "object"}
}
