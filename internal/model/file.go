package model

import (
	"time"

	"github.com/google/uuid"
)

// NexusFile 代表进入处理管道的一个逻辑文件：原始字节的存储位置与文件级元数据。
type NexusFile struct {
	FileID   string            `json:"file_id"`
	FileName string            `json:"file_name"`
	FilePath string            `json:"file_path"`
	Metadata map[string]string `json:"metadata"`
}

// NewNexusFile 创建一个带有新生成 FileID 的 NexusFile。
func NewNexusFile(fileName, filePath string) NexusFile {
	return NexusFile{
		FileID:   uuid.NewString(),
		FileName: fileName,
		FilePath: filePath,
		Metadata: make(map[string]string),
	}
}

// 文件处理状态，与 files 表的 status 列取值一致。
const (
	FileStatusPending    = "PENDING"
	FileStatusProcessing = "PROCESSING"
	FileStatusSuccess    = "SUCCESS"
	FileStatusFailure    = "FAILURE"
)

// FileRecord 定义了 files 表的 ORM 模型。
// 它记录了每个已上传文件的归属 Brain、对象存储位置和处理状态。
type FileRecord struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FileName  string    `gorm:"type:varchar(255);not null;index" json:"fileName"`
	ObjectKey string    `gorm:"type:varchar(512);not null" json:"objectKey"`
	Status    string    `gorm:"type:varchar(16);not null;default:PENDING" json:"status"`
	BrainID   string    `gorm:"type:varchar(36);not null;index" json:"brainId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "files"
}
