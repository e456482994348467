package resolver

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testwing/testwing/models"
)

func TestResolvedCacheEpochInvalidation(t *testing.T) {
	c := NewCaches()
	h := &ResolvedHandle{Selector: "#login", epoch: 1}
	c.PutResolved("login button", h)

	got, ok := c.GetResolved("login button", 1)
	require.True(t, ok)
	assert.Equal(t, "#login", got.Selector)

	// 导航后（epoch 变化）旧句柄被丢弃且从缓存删除
	_, ok = c.GetResolved("login button", 2)
	assert.False(t, ok)
	_, ok = c.GetResolved("login button", 1)
	assert.False(t, ok)
}

func TestHealingRecordsBound(t *testing.T) {
	c := NewCaches()
	for i := 0; i < maxHealingRecords+5; i++ {
		c.AddHealingRecord(models.HealingResult{
			Success:         true,
			OriginalLocator: "css:#old",
			HealedLocator:   fmt.Sprintf("#new-%d", i),
			Timestamp:       time.Now(),
		})
	}

	records := c.HealingRecords("css:#old")
	require.Len(t, records, maxHealingRecords)
	// 淘汰最旧的，保留最新的 10 条
	assert.Equal(t, "#new-5", records[0].HealedLocator)
	assert.Equal(t, "#new-14", records[len(records)-1].HealedLocator)

	last, ok := c.LastHealingResult("css:#old")
	require.True(t, ok)
	assert.Equal(t, "#new-14", last.HealedLocator)
}

func TestAlternativesMRUAndBound(t *testing.T) {
	c := NewCaches()
	for i := 0; i < maxAlternativeHistory+2; i++ {
		c.AddAlternative("login button", fmt.Sprintf("#alt-%d", i))
	}

	alts := c.Alternatives("login button")
	require.Len(t, alts, maxAlternativeHistory)
	// 新在前
	assert.Equal(t, "#alt-6", alts[0])

	// 重复项提到最前且不增长
	c.AddAlternative("login button", "#alt-4")
	alts = c.Alternatives("login button")
	require.Len(t, alts, maxAlternativeHistory)
	assert.Equal(t, "#alt-4", alts[0])
	assert.Equal(t, "#alt-6", alts[1])
}

func TestSignatureCaches(t *testing.T) {
	c := NewCaches()

	_, ok := c.VisualSignature("css:#btn")
	assert.False(t, ok)

	c.PutVisualSignature("css:#btn", models.VisualSignature{Width: 120, Height: 40})
	sig, ok := c.VisualSignature("css:#btn")
	require.True(t, ok)
	assert.Equal(t, 120.0, sig.Width)

	c.PutStructureSignature("css:#btn", models.StructureSignature{Tag: "button"})
	st, ok := c.StructureSignature("css:#btn")
	require.True(t, ok)
	assert.Equal(t, "button", st.Tag)
}
