// Package authctl implements the operator commands of the auth server:
//
//	authctl keygen -out <dir> [-bits 2048]
//	authctl create-admin -d <dsn> -email <email> -name <name>
//
// keygen writes the RSA key pair the server signs access tokens with.
// create-admin migrates the database and seeds a user with role "admin";
// the password is read from the terminal without echo.
package authctl
