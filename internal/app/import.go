package app

import (
	"fmt"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/importer"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// ImportResult summarizes an import.
type ImportResult struct {
	Added    []*vault.Item
	Skipped  []importer.SkippedItem
	Warnings []string
}

// Import parses data exported by source and adds every usable item.
func (a *App) Import(source importer.Source, data []byte) (*ImportResult, error) {
	a.Touch()
	if a.Gate.Locked() {
		return nil, vault.ErrLocked
	}
	parser, err := importer.GetParser(source)
	if err != nil {
		return nil, err
	}
	parsed, err := parser.Parse(data)
	if err != nil {
		a.record(audit.OpImport, "", err, map[string]string{"source": string(source)})
		return nil, err
	}

	res := &ImportResult{Skipped: parsed.Skipped, Warnings: parsed.Warnings}
	for _, d := range parsed.Items {
		if err := a.Categories.Validate(d.Type, d.Fields); err != nil {
			res.Skipped = append(res.Skipped, importer.SkippedItem{OriginalName: d.Label, Reason: err.Error()})
			continue
		}
		it, err := a.Vault.AddItem(d)
		if err != nil {
			return res, fmt.Errorf("app: import stopped after %d items: %w", len(res.Added), err)
		}
		res.Added = append(res.Added, it)
	}
	a.record(audit.OpImport, "", nil, map[string]string{
		"source":  string(source),
		"added":   fmt.Sprint(len(res.Added)),
		"skipped": fmt.Sprint(len(res.Skipped)),
	})
	return res, nil
}
