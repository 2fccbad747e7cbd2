package chain

import (
	"testing"
	"time"
)

func TestManualClockHead(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	c := NewManualClock(1000, at)

	head := c.Head()
	if head.Number != 1000 || !head.Time.Equal(at) {
		t.Fatalf("unexpected head: %+v", head)
	}
	if head.Unix() != 1_700_000_000 {
		t.Fatalf("unexpected unix: %d", head.Unix())
	}
}

func TestHeadUnixClampsNonPositive(t *testing.T) {
	if (Head{}).Unix() != 0 {
		t.Fatal("zero time should read as 0")
	}
	if (Head{Time: time.Unix(-5, 0)}).Unix() != 0 {
		t.Fatal("pre-epoch time should read as 0")
	}
}

func TestSetHeadIgnoresBackwards(t *testing.T) {
	c := NewManualClock(1000, time.Unix(1_700_000_000, 0))

	c.SetHead(Head{Number: 500, Time: time.Unix(1_600_000_000, 0)})
	if c.Head().Number != 1000 {
		t.Fatalf("backwards head applied: %d", c.Head().Number)
	}

	c.SetHead(Head{Number: 2000, Time: time.Unix(1_800_000_000, 0)})
	if c.Head().Number != 2000 {
		t.Fatalf("forward head not applied: %d", c.Head().Number)
	}

	// Same number is allowed: timestamps may refine within a block.
	c.SetHead(Head{Number: 2000, Time: time.Unix(1_800_000_060, 0)})
	if c.Head().Unix() != 1_800_000_060 {
		t.Fatalf("same-number head not applied: %d", c.Head().Unix())
	}
}

func TestAdvance(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	c := NewManualClock(1000, at)

	c.AdvanceBlocks(300)
	if c.Head().Number != 1300 {
		t.Fatalf("expected block 1300, got %d", c.Head().Number)
	}
	if !c.Head().Time.Equal(at) {
		t.Fatal("AdvanceBlocks must not touch the timestamp")
	}

	c.AdvanceTime(time.Hour)
	if c.Head().Unix() != 1_700_003_600 {
		t.Fatalf("expected +3600s, got %d", c.Head().Unix())
	}
	if c.Head().Number != 1300 {
		t.Fatal("AdvanceTime must not touch the block number")
	}
}
