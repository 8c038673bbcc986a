package loader

import (
	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/tools/executors"
)

type recordingBroker struct {
	refs map[string][]secrets.Reference
}

func (b *recordingBroker) RegisterTool(name string, _ executors.Executor, refs ...secrets.Reference) {
	if b.refs == nil {
		b.refs = make(map[string][]secrets.Reference)
	}
	b.refs[name] = refs
}

func secretsRef(item, field string) secrets.Reference {
	return secrets.Reference{Item: item, Field: field}
}
