package worker

import (
	"go.uber.org/zap"

	"internattend/internal/cloudinary"
	"internattend/internal/config"
	"internattend/internal/qrtoken"
)

// NewArtifactStore picks Cloudinary when a cloud name is configured and the
// local artifact directory otherwise.
func NewArtifactStore(cfg config.App, log *zap.Logger) (qrtoken.ArtifactStore, error) {
	if cfg.CloudinaryCloudName != "" {
		log.Info("qr artifacts stored on cloudinary", zap.String("cloud", cfg.CloudinaryCloudName))
		return cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder), nil
	}
	dir, err := qrtoken.NewDirStore(cfg.QRArtifactDir)
	if err != nil {
		return nil, err
	}
	log.Info("qr artifacts stored locally", zap.String("dir", cfg.QRArtifactDir))
	return dir, nil
}
