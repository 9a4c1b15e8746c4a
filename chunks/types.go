package chunks

import "strconv"

// FileType is the content kind of a file entry.
type FileType uint16

const (
	FileTable             FileType = 0x1
	FileRoom              FileType = 0x10
	FileTextureBundles    FileType = 0x20
	FileModelBundles      FileType = 0x21
	FileCutsceneNLB       FileType = 0x30
	FileConfig            FileType = 0x31 // text parameters
	FileVideo             FileType = 0x1200
	FileAnimationBundles  FileType = 0x1302
	FileAudioBanks        FileType = 0x3000
	FileEffects           FileType = 0x4000
	FileScript            FileType = 0x5000
	FileGameObjectScripts FileType = 0x6500
	FileGameObject        FileType = 0x6510
	FileAnimationData     FileType = 0x7000
	FileFont              FileType = 0x7010
	FileMessageData       FileType = 0x7020
	FileSkeleton          FileType = 0x7100
	FileVAND              FileType = 0x9501
	FileModel             FileType = 0xB000
	FileMaterialEffects   FileType = 0xB300
	FileMaterialParams    FileType = 0xB310
	FileMaterialShaders   FileType = 0xB320
	FileShaders           FileType = 0xB400
	FileShaderConstants   FileType = 0xB404
	FileTexture           FileType = 0xB500
	FileCollisionStatic   FileType = 0xC107
	FileHitboxes          FileType = 0xC300
	FileHitboxRigged      FileType = 0xD000
	FileClothPhysics      FileType = 0xE000
)

var fileTypeNames = map[FileType]string{
	FileTable:             "FileTable",
	FileRoom:              "Room",
	FileTextureBundles:    "TextureBundles",
	FileModelBundles:      "ModelBundles",
	FileCutsceneNLB:       "CutsceneNLB",
	FileConfig:            "Config",
	FileVideo:             "Video",
	FileAnimationBundles:  "AnimationBundles",
	FileAudioBanks:        "AudioBanks",
	FileEffects:           "Effects",
	FileScript:            "Script",
	FileGameObjectScripts: "GameObjectScriptTable",
	FileGameObject:        "GameObject",
	FileAnimationData:     "AnimationData",
	FileFont:              "Font",
	FileMessageData:       "MessageData",
	FileSkeleton:          "Skeleton",
	FileVAND:              "VAND",
	FileModel:             "Model",
	FileMaterialEffects:   "MaterialEffects",
	FileMaterialParams:    "MaterialParams",
	FileMaterialShaders:   "MaterialShaders",
	FileShaders:           "Shaders",
	FileShaderConstants:   "ShaderConstants",
	FileTexture:           "Texture",
	FileCollisionStatic:   "CollisionStatic",
	FileHitboxes:          "Hitboxes",
	FileHitboxRigged:      "HitboxRigged",
	FileClothPhysics:      "ClothPhysics",
}

// String returns the type name, or the decimal value for unknown types.
func (t FileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// ParseFileType is the inverse of FileType.String.
func ParseFileType(s string) (FileType, bool) {
	for t, name := range fileTypeNames {
		if name == s {
			return t, true
		}
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return FileType(v), true
}

// DataType tags the payload of a plain chunk.
type DataType uint16

const (
	CutsceneNLB DataType = 0x1200

	ScriptHashBundle    DataType = 0x5011
	ScriptData          DataType = 0x5012 // raw script data and op codes
	ScriptHeader        DataType = 0x5013
	ScriptFunctionTable DataType = 0x5014
	ScriptStringHashes  DataType = 0x5015

	GameObjectDB                     DataType = 0x6500
	GameObjectDBScriptHashTable      DataType = 0x6501
	GameObjectDBHashScriptIndexTable DataType = 0x6502
	GameObjectDBScriptHash           DataType = 0x6503
	GameObjectScriptHash             DataType = 0x6511
	GameObjectComponentOffsets       DataType = 0x6512
	GameObjectComponentHashes        DataType = 0x6513
	GameObjectComponentList          DataType = 0x6514
	GameObjectParentHash             DataType = 0x6515

	UILayoutStart  DataType = 0x7000
	UILayoutHeader DataType = 0x7001
	UILayoutData   DataType = 0x7002
	UILayout       DataType = 0x7003
	FontData       DataType = 0x7011
	MessageData    DataType = 0x7020

	SkeletonHeader        DataType = 0x7101
	SkeletonBoneInfo      DataType = 0x7102
	SkeletonBoneTransform DataType = 0x7103
	SkeletonBoneIndexList DataType = 0x7104
	SkeletonBoneHashList  DataType = 0x7105
	SkeletonBoneParenting DataType = 0x7106

	AudioData1 DataType = 0xA251
	AudioData2 DataType = 0xA252
	AudioData3 DataType = 0xA253
	AudioData4 DataType = 0xA254

	ModelTransform       DataType = 0xB001 // 4x4 matrix
	ModelInfo            DataType = 0xB002
	MeshInfo             DataType = 0xB003
	VertexStartPointers  DataType = 0xB004
	MeshBuffers          DataType = 0xB005 // vertex and index buffers
	MaterialData         DataType = 0xB006
	MaterialLookupTable  DataType = 0xB007
	BoundingRadius       DataType = 0xB008
	BoundingBox          DataType = 0xB009
	MeshMorphInfos       DataType = 0xB00A
	MeshMorphIndexBuffer DataType = 0xB00B
	ModelUnknownSection  DataType = 0xB00C

	SkinControllerStart    DataType = 0xB100
	SkinBindingModelAssign DataType = 0xB101
	SkinMatrices           DataType = 0xB102
	SkinHashes             DataType = 0xB103

	MaterialRasterizerConfig          DataType = 0xB321
	MaterialDepthConfig               DataType = 0xB322
	MaterialBlendConfig               DataType = 0xB323
	MaterialShaderHeader              DataType = 0xB325
	MaterialShaderName                DataType = 0xB326
	MaterialParameterIndices          DataType = 0xB327
	MaterialParameterOffsets          DataType = 0xB328
	MaterialShaderAttrLocations       DataType = 0xB329
	MaterialShaderAttrLocationOffsets DataType = 0xB32A
	MaterialShaderProgramLocations    DataType = 0xB32B
	MaterialShaderProgramOffsets      DataType = 0xB32D
	MaterialShaderUnknown             DataType = 0xB32E
	MaterialVariation                 DataType = 0xB330
	ShaderProgramRenderParams         DataType = 0xB331
	ShaderProgramHeader               DataType = 0xB332
	ShaderProgramLocationOffsets      DataType = 0xB333
	ShaderProgramLocIndices           DataType = 0xB334
	ShaderProgramLocFlags             DataType = 0xB335
	ShaderProgramHashes               DataType = 0xB337

	ShaderData DataType = 0xB400
	ShaderA    DataType = 0xB401
	ShaderB    DataType = 0xB402

	TextureHeader DataType = 0xB501
	TextureData   DataType = 0xB502

	CollisionDataStart          DataType = 0xC100
	CollisionHeader             DataType = 0xC101
	CollisionSearch             DataType = 0xC102
	CollisionSearchTriIndices   DataType = 0xC103
	CollisionVertexPositions    DataType = 0xC110
	CollisionTriIndices         DataType = 0xC111
	CollisionTriNormals         DataType = 0xC112
	CollisionTriNormalIndices   DataType = 0xC113
	CollisionMaterialHashes     DataType = 0xC114
	CollisionTriMaterialIndices DataType = 0xC115
	CollisionTriPropertyIndices DataType = 0xC116

	HitboxObjects      DataType = 0xC301
	HitboxObjectParams DataType = 0xC302
	HavokPhysics       DataType = 0xC900
	PhysicData2        DataType = 0xC901
	HitboxRiggedHeader DataType = 0xD001
	HitboxRiggedData   DataType = 0xD002
)

var dataTypeNames = map[DataType]string{
	CutsceneNLB:                       "CutsceneNLB",
	ScriptHashBundle:                  "ScriptHashBundle",
	ScriptData:                        "ScriptData",
	ScriptHeader:                      "ScriptHeader",
	ScriptFunctionTable:               "ScriptFunctionTable",
	ScriptStringHashes:                "ScriptStringHashes",
	GameObjectDB:                      "GameObjectDB",
	GameObjectDBScriptHashTable:       "GameObjectDBScriptHashTable",
	GameObjectDBHashScriptIndexTable:  "GameObjectDBHashScriptIndexTable",
	GameObjectDBScriptHash:            "GameObjectDBScriptHash",
	GameObjectScriptHash:              "GameObjectScriptHash",
	GameObjectComponentOffsets:        "GameObjectComponentOffsets",
	GameObjectComponentHashes:         "GameObjectComponentHashes",
	GameObjectComponentList:           "GameObjectComponentList",
	GameObjectParentHash:              "GameObjectParentHash",
	UILayoutStart:                     "UILayoutStart",
	UILayoutHeader:                    "UILayoutHeader",
	UILayoutData:                      "UILayoutData",
	UILayout:                          "UILayout",
	FontData:                          "FontData",
	MessageData:                       "MessageData",
	SkeletonHeader:                    "SkeletonHeader",
	SkeletonBoneInfo:                  "SkeletonBoneInfo",
	SkeletonBoneTransform:             "SkeletonBoneTransform",
	SkeletonBoneIndexList:             "SkeletonBoneIndexList",
	SkeletonBoneHashList:              "SkeletonBoneHashList",
	SkeletonBoneParenting:             "SkeletonBoneParenting",
	AudioData1:                        "AudioData1",
	AudioData2:                        "AudioData2",
	AudioData3:                        "AudioData3",
	AudioData4:                        "AudioData4",
	ModelTransform:                    "ModelTransform",
	ModelInfo:                         "ModelInfo",
	MeshInfo:                          "MeshInfo",
	VertexStartPointers:               "VertexStartPointers",
	MeshBuffers:                       "MeshBuffers",
	MaterialData:                      "MaterialData",
	MaterialLookupTable:               "MaterialLookupTable",
	BoundingRadius:                    "BoundingRadius",
	BoundingBox:                       "BoundingBox",
	MeshMorphInfos:                    "MeshMorphInfos",
	MeshMorphIndexBuffer:              "MeshMorphIndexBuffer",
	ModelUnknownSection:               "ModelUnknownSection",
	SkinControllerStart:               "SkinControllerStart",
	SkinBindingModelAssign:            "SkinBindingModelAssign",
	SkinMatrices:                      "SkinMatrices",
	SkinHashes:                        "SkinHashes",
	MaterialRasterizerConfig:          "MaterialRasterizerConfig",
	MaterialDepthConfig:               "MaterialDepthConfig",
	MaterialBlendConfig:               "MaterialBlendConfig",
	MaterialShaderHeader:              "MaterialShaderHeader",
	MaterialShaderName:                "MaterialShaderName",
	MaterialParameterIndices:          "MaterialParameterIndices",
	MaterialParameterOffsets:          "MaterialParameterOffsets",
	MaterialShaderAttrLocations:       "MaterialShaderAttrLocations",
	MaterialShaderAttrLocationOffsets: "MaterialShaderAttrLocationOffsets",
	MaterialShaderProgramLocations:    "MaterialShaderProgramLocations",
	MaterialShaderProgramOffsets:      "MaterialShaderProgramOffsets",
	MaterialShaderUnknown:             "MaterialShaderUnknown",
	MaterialVariation:                 "MaterialVariation",
	ShaderProgramRenderParams:         "ShaderProgramRenderParams",
	ShaderProgramHeader:               "ShaderProgramHeader",
	ShaderProgramLocationOffsets:      "ShaderProgramLocationOffsets",
	ShaderProgramLocIndices:           "ShaderProgramLocIndices",
	ShaderProgramLocFlags:             "ShaderProgramLocFlags",
	ShaderProgramHashes:               "ShaderProgramHashes",
	ShaderData:                        "ShaderData",
	ShaderA:                           "ShaderA",
	ShaderB:                           "ShaderB",
	TextureHeader:                     "TextureHeader",
	TextureData:                       "TextureData",
	CollisionDataStart:                "CollisionDataStart",
	CollisionHeader:                   "CollisionHeader",
	CollisionSearch:                   "CollisionSearch",
	CollisionSearchTriIndices:         "CollisionSearchTriIndices",
	CollisionVertexPositions:          "CollisionVertexPositions",
	CollisionTriIndices:               "CollisionTriIndices",
	CollisionTriNormals:               "CollisionTriNormals",
	CollisionTriNormalIndices:         "CollisionTriNormalIndices",
	CollisionMaterialHashes:           "CollisionMaterialHashes",
	CollisionTriMaterialIndices:       "CollisionTriMaterialIndices",
	CollisionTriPropertyIndices:       "CollisionTriPropertyIndices",
	HitboxObjects:                     "HitboxObjects",
	HitboxObjectParams:                "HitboxObjectParams",
	HavokPhysics:                      "HavokPhysics",
	PhysicData2:                       "PhysicData2",
	HitboxRiggedHeader:                "HitboxRiggedHeader",
	HitboxRiggedData:                  "HitboxRiggedData",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// needsAlignment lists payloads the game reads with 16-byte alignment.
func (t DataType) needsAlignment() bool {
	switch t {
	case TextureData, ModelTransform, MeshBuffers:
		return true
	}
	return false
}
