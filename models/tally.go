package models

// Tally 统计一个表决的赞成/反对票数。
// 客户端（乐观更新）和后端（持久化）都调用同一个函数，保证两边从同样的选择集合得到同样的结果。
// 非 yay/nay 的选项既不算赞成也不算反对。
func Tally(selections map[string]VoteSelection) VoteCount {
	var count VoteCount
	for _, sel := range selections {
		switch sel.Option {
		case OptionYay:
			count.Yay++
		case OptionNay:
			count.Nay++
		}
	}
	return count
}
