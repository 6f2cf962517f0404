package prompt

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func typeString(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestModelWalksQuestionsAndAppliesDefaults(t *testing.T) {
	questions := []Question{
		{Key: "implementationClass", Prompt: "Declaration type", Default: "ApplicationProperties"},
		{Key: "environments", Prompt: "Environments", Default: "*"},
	}
	var m tea.Model = newModel(questions)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "Environments")

	m = typeString(m, "test,prod")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	final := m.(model)
	assert.True(t, final.done)
	assert.Empty(t, final.View())
	assert.Equal(t, map[string]string{
		"implementationClass": "ApplicationProperties",
		"environments":        "test,prod",
	}, final.answers())
}

func TestModelEscCancels(t *testing.T) {
	var m tea.Model = newModel([]Question{{Key: "a", Prompt: "A"}})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotNil(t, cmd)
	assert.False(t, m.(model).done)
}

func TestAskWithoutQuestions(t *testing.T) {
	got, err := Ask(nil, nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}
