package meta

import "strings"

// SystemFields 全局配置的系统字段列名，这些名字对普通字段保留
type SystemFields struct {
	PrimaryKey string `cfg:"primaryKey" def:"ID"`
	CreateTime string `cfg:"createTime" def:"CREATE_TIME"`
	UpdateTime string `cfg:"updateTime" def:"UPDATE_TIME"`
	Version    string `cfg:"version" def:"VERSION"`
	Deleted    string `cfg:"deleted" def:"DELETED"`
}

// DefaultSystemFields 默认系统字段列名
func DefaultSystemFields() *SystemFields {
	return &SystemFields{
		PrimaryKey: "ID",
		CreateTime: "CREATE_TIME",
		UpdateTime: "UPDATE_TIME",
		Version:    "VERSION",
		Deleted:    "DELETED",
	}
}

// Column 角色对应的列名
func (s *SystemFields) Column(kind SystemKind) string {
	var name string
	switch kind {
	case PrimaryKey:
		name = s.PrimaryKey
	case CreateTime:
		name = s.CreateTime
	case UpdateTime:
		name = s.UpdateTime
	case Version:
		name = s.Version
	case Deleted:
		name = s.Deleted
	}
	return strings.ToUpper(strings.TrimSpace(name))
}

// Reserved 列名是否为某个系统角色保留
func (s *SystemFields) Reserved(column string) (SystemKind, bool) {
	column = strings.ToUpper(strings.TrimSpace(column))
	for _, kind := range SystemKinds() {
		if name := s.Column(kind); name != "" && name == column {
			return kind, true
		}
	}
	return 0, false
}
