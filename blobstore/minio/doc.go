// Package minio provides a BlobStore on MinIO and other S3-compatible
// object stores through the MinIO client.
//
//	client, err := minio.Connect(minio.Options{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	})
//	store := minio.NewStore(client, "features", "run-42/")
package minio
