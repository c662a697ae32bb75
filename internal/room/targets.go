package room

// SelectedTargets 已选目标，按选择顺序保存且不重复
type SelectedTargets struct {
	ids []int
}

// Add 添加目标，已存在时返回 false
func (t *SelectedTargets) Add(id int) bool {
	if t.Contains(id) {
		return false
	}
	t.ids = append(t.ids, id)
	return true
}

// Remove 移除目标，不存在时返回 false
func (t *SelectedTargets) Remove(id int) bool {
	for i, v := range t.ids {
		if v == id {
			t.ids = append(t.ids[:i], t.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Contains 是否已选
func (t *SelectedTargets) Contains(id int) bool {
	for _, v := range t.ids {
		if v == id {
			return true
		}
	}
	return false
}

// ContainsAll 是否包含全部给定目标
func (t *SelectedTargets) ContainsAll(ids []int) bool {
	for _, id := range ids {
		if !t.Contains(id) {
			return false
		}
	}
	return true
}

// IDs 返回副本
func (t *SelectedTargets) IDs() []int {
	out := make([]int, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len 已选数量
func (t *SelectedTargets) Len() int { return len(t.ids) }

// Clear 清空
func (t *SelectedTargets) Clear() { t.ids = nil }
