// Package scripts 汇集随二进制一起编译的导出脚本函数。
// 脚本不再从磁盘动态加载，全部在这里按（脚本名, 函数名）注册，
// 管理端和调度器两个进程启动时装载同一份注册表，
// 任务配置校验和实际执行看到的函数集合保持一致。
package scripts

import (
	"com.duole/query-export-go/internal/models"
	"com.duole/query-export-go/internal/services"
)

// RegisterAll 注册全部脚本函数，cmd/server 和 cmd/scheduler 启动时各调用一次。
// 新增脚本在这里追加 reg.Register 调用并重新发布两个进程。
func RegisterAll(reg *services.ScriptRegistry) {
	reg.Register("builtin", "export_tables", exportTables)
}

// exportTables 导出任务数据源中的全部表名。
// 自带的链路自检脚本：新数据源接入后建一个指向它的脚本任务即可验证
// 调度、执行、导出全链路。
func exportTables(ctx *services.ScriptContext) (any, error) {
	tables, err := ctx.Connections.ListTables(ctx.Task.DataSourceName)
	if err != nil {
		return nil, err
	}

	rs := &models.ResultSet{Columns: []string{"table_name"}}
	for _, table := range tables {
		rs.Rows = append(rs.Rows, []any{table})
	}
	return rs, nil
}
