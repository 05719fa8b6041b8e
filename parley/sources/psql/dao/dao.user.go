package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"parley/parley/sources/psql/models"
)

type UserDAO struct {
	DB *gorm.DB
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{DB: db}
}

func (dao *UserDAO) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := dao.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (dao *UserDAO) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := dao.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (dao *UserDAO) CreateUser(ctx context.Context, email string, fullName *string, imageURL *string) (*models.User, error) {
	user := models.User{
		Email:    email,
		FullName: fullName,
		ImageURL: imageURL,
	}
	err := dao.DB.WithContext(ctx).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUserByEmail creates the user on first sign-in and refreshes the
// profile fields on later ones. The id never changes.
func (dao *UserDAO) UpsertUserByEmail(ctx context.Context, email string, fullName *string, imageURL *string) (*models.User, error) {
	user, err := dao.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return dao.CreateUser(ctx, email, fullName, imageURL)
	}
	user.FullName = fullName
	user.ImageURL = imageURL
	if err := dao.DB.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}
