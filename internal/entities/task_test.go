package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func TestGetExportMethods(t *testing.T) {
	task := &ExportTask{}
	assert.Nil(t, task.GetExportMethods())

	task.ExportMethods = strptr("local, webhook ,email")
	assert.Equal(t, []string{"local", "webhook", "email"}, task.GetExportMethods())

	task.ExportMethods = strptr("local,,  ,")
	assert.Equal(t, []string{"local"}, task.GetExportMethods())
}

func TestHasExportMethod(t *testing.T) {
	task := &ExportTask{ExportMethods: strptr("local,webhook")}
	assert.True(t, task.HasExportMethod(ExportMethodLocal))
	assert.True(t, task.HasExportMethod(ExportMethodWebhook))
	assert.False(t, task.HasExportMethod(ExportMethodEmail))
}

func TestIsSchedulable(t *testing.T) {
	task := &ExportTask{Status: TaskStatusActive, CronExpression: strptr("0 8 * * *")}
	assert.True(t, task.IsSchedulable())

	task.Status = TaskStatusInactive
	assert.False(t, task.IsSchedulable())

	task.Status = TaskStatusActive
	task.CronExpression = strptr("")
	assert.False(t, task.IsSchedulable())

	task.CronExpression = nil
	assert.False(t, task.IsSchedulable())
}

func TestGetEmailRecipients(t *testing.T) {
	task := &ExportTask{}
	assert.Nil(t, task.GetEmailRecipients())

	task.EmailRecipients = strptr("a@duole.com, b@duole.com,")
	assert.Equal(t, []string{"a@duole.com", "b@duole.com"}, task.GetEmailRecipients())
}

func TestGetSQLContent(t *testing.T) {
	task := &ExportTask{}
	assert.Equal(t, "", task.GetSQLContent())

	task.SQLContent = strptr("SELECT 1")
	assert.Equal(t, "SELECT 1", task.GetSQLContent())
}
