package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Disabled(t *testing.T) {
	p := NewProgress(10, false)
	assert.False(t, p.enabled)
	assert.Nil(t, p.bar)

	p.SetTotal(20)
	p.Update(5, "Items/Sword.rawimg")
	p.Finish()
	assert.Empty(t, p.label())
}

func TestProgress_Label(t *testing.T) {
	p := &Progress{description: "Content/Very/Long/Path/To/Some/File.rawimg"}
	got := p.label()
	assert.Len(t, got, descLength)
	assert.Equal(t, "..", got[:2])
	assert.Equal(t, "File.rawimg", got[len(got)-11:])

	p.description = "short"
	assert.Equal(t, "short", p.label())
}
