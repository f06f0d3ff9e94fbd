package database

import (
	"database/sql"
	"errors"
	"fmt"

	"com.duole/query-export-go/internal/entities"
)

// DataSourceDB 数据源数据库操作（空结构体）
type DataSourceDB struct{}

const dataSourceColumns = `
	id, name, type, host, port, ` + "`database`" + `, username, password,
	charset, connection_params, description, is_active, created_at, updated_at`

func scanDataSource(scanner interface{ Scan(...any) error }) (*entities.DataSource, error) {
	var ds entities.DataSource
	err := scanner.Scan(
		&ds.ID, &ds.Name, &ds.Type, &ds.Host, &ds.Port, &ds.Database, &ds.Username, &ds.Password,
		&ds.Charset, &ds.ConnectionParams, &ds.Description, &ds.IsActive, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// List 获取数据源列表，activeOnly 为 true 时仅返回启用的数据源
func (d *DataSourceDB) List(activeOnly bool) ([]entities.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources`
	if activeOnly {
		query += ` WHERE is_active=1`
	}
	query += ` ORDER BY id DESC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("查询数据源列表失败: %w", err)
	}
	defer rows.Close()

	var dataSources []entities.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描数据源数据失败: %w", err)
		}
		dataSources = append(dataSources, *ds)
	}

	return dataSources, rows.Err()
}

// GetByID 根据 ID 获取数据源
func (d *DataSourceDB) GetByID(id int) (*entities.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE id=?`

	ds, err := scanDataSource(db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询数据源失败: %w", err)
	}

	return ds, nil
}

// GetByName 根据名称获取数据源
func (d *DataSourceDB) GetByName(name string) (*entities.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE name=?`

	ds, err := scanDataSource(db.QueryRow(query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询数据源失败: %w", err)
	}

	return ds, nil
}

// Create 创建数据源
func (d *DataSourceDB) Create(ds *entities.DataSource) error {
	query := `INSERT INTO data_sources(name, type, host, port, ` + "`database`" + `, username, password,
			charset, connection_params, description, is_active)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`

	result, err := db.Exec(query,
		ds.Name, ds.Type, ds.Host, ds.Port, ds.Database, ds.Username, ds.Password,
		ds.Charset, ds.ConnectionParams, ds.Description, ds.IsActive,
	)
	if err != nil {
		return fmt.Errorf("创建数据源失败: %w", err)
	}

	dsID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取数据源ID失败: %w", err)
	}
	ds.ID = int(dsID)

	return nil
}

// Update 更新数据源。密码为空时保留原密码不更新。
func (d *DataSourceDB) Update(ds *entities.DataSource) error {
	var query string
	var args []any

	if ds.Password == "" {
		query = `UPDATE data_sources SET name=?, type=?, host=?, port=?, ` + "`database`" + `=?, username=?,
			charset=?, connection_params=?, description=?, is_active=? WHERE id=?`
		args = []any{ds.Name, ds.Type, ds.Host, ds.Port, ds.Database, ds.Username,
			ds.Charset, ds.ConnectionParams, ds.Description, ds.IsActive, ds.ID}
	} else {
		query = `UPDATE data_sources SET name=?, type=?, host=?, port=?, ` + "`database`" + `=?, username=?, password=?,
			charset=?, connection_params=?, description=?, is_active=? WHERE id=?`
		args = []any{ds.Name, ds.Type, ds.Host, ds.Port, ds.Database, ds.Username, ds.Password,
			ds.Charset, ds.ConnectionParams, ds.Description, ds.IsActive, ds.ID}
	}

	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("更新数据源失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("检查更新结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("数据源不存在")
	}

	return nil
}

// Delete 删除数据源。仍被任务引用的数据源拒绝删除。
func (d *DataSourceDB) Delete(id int) error {
	var refCount int
	err := db.QueryRow(`SELECT COUNT(*) FROM export_tasks WHERE data_source_id=? AND status <> 'deleted'`, id).
		Scan(&refCount)
	if err != nil {
		return fmt.Errorf("检查数据源引用失败: %w", err)
	}
	if refCount > 0 {
		return fmt.Errorf("数据源仍被 %d 个任务引用，无法删除", refCount)
	}

	result, err := db.Exec(`DELETE FROM data_sources WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("删除数据源失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("检查删除结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("数据源不存在")
	}

	return nil
}
