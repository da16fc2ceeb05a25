package codec

import "github.com/zeusync/playsync/internal/core/document"

// EncodeResources writes resources with their data, keyed by their library
// ids. Nil entries are skipped.
func EncodeResources(resources []*document.Resource) []byte {
	var e encoder
	for _, r := range resources {
		if r == nil {
			continue
		}
		num := fDocAssets
		if r.ObjectKind() == document.KindBuffer {
			num = fDocBuffers
		}
		e.message(num, func(m *encoder) {
			m.uint(fResID, r.ID().Pack())
			m.uint(fResKind, uint64(r.ObjectKind()))
			m.str(fResName, r.Name)
			m.str(fResMime, r.MimeType)
			m.bytes(fResData, r.Data)
		})
	}
	return e.b
}

// DecodeResources places every resource in lib under its encoded id.
// Resources lib already holds are left as they are.
func DecodeResources(data []byte, lib *document.Library) (*Report, error) {
	d := &decoder{
		lib:       lib,
		opts:      DecodeOptions{Library: lib, PreserveIDs: true},
		raw:       &rawDocument{strategy: IdentityOfSource, assetMode: InlineData},
		resources: make(map[WireID]document.ObjectID),
		report:    &Report{},
	}
	err := eachField(data, func(f field) error {
		switch f.num {
		case fDocAssets, fDocBuffers:
			d.resource(f.data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.report, nil
}
