package book

import "testing"

func TestLevelTreeInsertFindDelete(t *testing.T) {
	tree := newLevelTree()
	pl1 := tree.UpsertLevel(100)
	if pl1 == nil {
		t.Fatal("UpsertLevel failed")
	}
	if pl2 := tree.FindLevel(100); pl2 != pl1 {
		t.Error("FindLevel did not return same PriceLevel")
	}

	tree.UpsertLevel(200)
	if tree.MinLevel().Price != 100 {
		t.Error("expected min=100")
	}
	if tree.MaxLevel().Price != 200 {
		t.Error("expected max=200")
	}

	if !tree.DeleteLevel(100) {
		t.Error("DeleteLevel failed")
	}
	if tree.FindLevel(100) != nil {
		t.Error("expected level 100 to be gone")
	}
}

// --- Edge Cases ---

func TestDeleteNonExistentLevel(t *testing.T) {
	tree := newLevelTree()
	if tree.DeleteLevel(123) {
		t.Error("expected false when deleting non-existent level")
	}
}

func TestEmptyTreeMinMax(t *testing.T) {
	tree := newLevelTree()
	if tree.MinLevel() != nil || tree.MaxLevel() != nil {
		t.Error("expected nil for min/max on empty tree")
	}
}

func TestUpsertDuplicateLevel(t *testing.T) {
	tree := newLevelTree()
	pl1 := tree.UpsertLevel(150)
	pl2 := tree.UpsertLevel(150)
	if pl1 != pl2 {
		t.Error("Upsert should return the same node for duplicate level")
	}
}

func TestOrderedTraversal(t *testing.T) {
	tree := newLevelTree()
	for _, p := range []int64{50, 10, 90, 30, 70, 20, 80} {
		tree.UpsertLevel(p)
	}
	if tree.Size() != 7 {
		t.Fatalf("expected 7 levels, got %d", tree.Size())
	}

	var asc []int64
	tree.ForEachAscending(func(pl *PriceLevel) bool {
		asc = append(asc, pl.Price)
		return true
	})
	for i := 1; i < len(asc); i++ {
		if asc[i-1] >= asc[i] {
			t.Fatalf("ascending walk out of order: %v", asc)
		}
	}

	var desc []int64
	tree.ForEachDescending(func(pl *PriceLevel) bool {
		desc = append(desc, pl.Price)
		return true
	})
	for i := 1; i < len(desc); i++ {
		if desc[i-1] <= desc[i] {
			t.Fatalf("descending walk out of order: %v", desc)
		}
	}
}

func TestTraversalEarlyStop(t *testing.T) {
	tree := newLevelTree()
	for p := int64(1); p <= 10; p++ {
		tree.UpsertLevel(p)
	}
	count := 0
	tree.ForEachAscending(func(pl *PriceLevel) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Errorf("expected walk to stop after 3 levels, got %d", count)
	}
}

func TestClearEmptiesTree(t *testing.T) {
	tree := newLevelTree()
	tree.UpsertLevel(1)
	tree.UpsertLevel(2)
	tree.Clear()
	if tree.Size() != 0 || tree.MinLevel() != nil {
		t.Error("Clear should discard all levels")
	}
}

func TestManyInsertsAndDeletesStayOrdered(t *testing.T) {
	tree := newLevelTree()
	const n = 1000
	for i := int64(0); i < n; i++ {
		tree.UpsertLevel((i * 7919) % 10007)
	}
	for i := int64(0); i < n; i += 2 {
		tree.DeleteLevel((i * 7919) % 10007)
	}
	prev := int64(-1)
	tree.ForEachAscending(func(pl *PriceLevel) bool {
		if pl.Price <= prev {
			t.Fatalf("tree out of order at %d after %d", pl.Price, prev)
		}
		prev = pl.Price
		return true
	})
}
