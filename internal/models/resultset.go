package models

// ResultSet 查询结果的表格表示：列有序，行为行优先存储。
// 对应任务执行产出的单个数据集。
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len 返回行数
func (rs *ResultSet) Len() int {
	return len(rs.Rows)
}

// Truncate 截断到最多 n 行
func (rs *ResultSet) Truncate(n int) {
	if n >= 0 && len(rs.Rows) > n {
		rs.Rows = rs.Rows[:n]
	}
}

// Records 按列名展开为逐行 map，供预览接口输出
func (rs *ResultSet) Records() []map[string]any {
	records := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		record := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}
